package command

// Status values carried by every response.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response is the reply to one request. It always has a "status" key and,
// on failure, a "message" key.
type Response map[string]any

// OK reports whether the response signals success.
func (r Response) OK() bool {
	return r["status"] == StatusOK
}

// Message returns the error message of a failed response.
func (r Response) Message() string {
	msg, _ := r["message"].(string)
	return msg
}

func ok(fields Response) Response {
	resp := make(Response, len(fields)+1)
	for k, v := range fields {
		resp[k] = v
	}
	resp["status"] = StatusOK
	return resp
}

func errorResponse(msg string) Response {
	return Response{"status": StatusError, "message": msg}
}
