package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBuildPagination(t *testing.T) {
	cases := []struct {
		page, size int
		total      int64
		want       int64
	}{
		{page: 1, size: 20, total: 0, want: 0},
		{page: 1, size: 20, total: 20, want: 1},
		{page: 2, size: 20, total: 41, want: 3},
		{page: 1, size: 0, total: 5, want: 0},
	}
	for _, tc := range cases {
		got := BuildPagination(tc.page, tc.size, tc.total)
		if got.TotalPage != tc.want || got.Total != tc.total {
			t.Fatalf("total=%d size=%d: want pages %d got %+v", tc.total, tc.size, tc.want, got)
		}
	}
}

func TestErrorAttachesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")
	ErrorWithStatus(c, http.StatusBadRequest, CodeBadRequest, "bad")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected http status: %d", w.Code)
	}
	var body struct {
		StatusCode int               `json:"status_code"`
		Msg        string            `json:"msg"`
		Data       map[string]string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.StatusCode != CodeBadRequest || body.Data["request_id"] != "req-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
