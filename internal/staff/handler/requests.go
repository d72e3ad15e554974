package handler

type createDepartmentRequest struct {
	Name string `json:"name"`
}

type assignEmployeeRequest struct {
	UserID string `json:"user_id"`
}
