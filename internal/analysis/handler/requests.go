package handler

// SubmitRequest is the POST /domains body.
type SubmitRequest struct {
	Domain string `json:"domain"`
}
