package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func parse(query string) Params {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return Parse(c)
}

func TestParse(t *testing.T) {
	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit, Offset: 0}, parse(""))
	assert.Equal(t, Params{Page: 3, Limit: 10, Offset: 20}, parse("page=3&per_page=10"))
	assert.Equal(t, Params{Page: 2, Limit: 5, Offset: 5}, parse("page=2&limit=5"))
	assert.Equal(t, 10, parse("per_page=10&limit=50").Limit)
	assert.Equal(t, MaxLimit, parse("per_page=1000").Limit)
	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit, Offset: 0}, parse("page=-4&per_page=abc"))
}
