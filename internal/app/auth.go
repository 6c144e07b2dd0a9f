package app

import "github.com/gin-gonic/gin"

// ownerFromHeader is a placeholder for the out-of-scope auth middleware
// (spec §1: "token issuance/validation ... out of scope"). It trusts an
// X-Owner-Id header so the discovery routes have an owner id to gate on;
// a real deployment replaces this with token validation that sets the
// same context key.
func ownerFromHeader(c *gin.Context) {
	c.Set("ownerID", c.GetHeader("X-Owner-Id"))
	c.Next()
}
