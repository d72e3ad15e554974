package handler

type addCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}
