package response

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response common JSON envelope
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// Success writes a 200 envelope with code 200
func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Msg: msg, Data: data})
}

// Fail writes a 200 envelope with code 400
func Fail(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusBadRequest, Msg: msg, Data: data})
}

// AbortWithStatus aborts with an empty body
func AbortWithStatus(c *gin.Context, status int) {
	c.AbortWithStatus(status)
}

// AbortWithStatusJSON aborts with an envelope carrying the error message
func AbortWithStatusJSON(c *gin.Context, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, Response{Code: status, Msg: msg})
}

// GetBody reads the request body and puts it back for later readers
func GetBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
