package response

// Response represents the standard API envelope
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Page wraps a paginated collection
type Page struct {
	Items   interface{} `json:"items"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
}

// Success returns a success envelope wrapping the data
func Success(message string, data interface{}) Response {
	if message == "" {
		message = "OK"
	}
	return Response{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// Error returns an error envelope with an optional field map
func Error(message string, fields map[string]string) Response {
	return Response{
		Success: false,
		Message: message,
		Errors:  fields,
	}
}
