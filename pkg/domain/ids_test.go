package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "filegate/pkg/domain-errors"
)

// IDSuite tests identifier parsing at trust boundaries.
type IDSuite struct {
	suite.Suite
}

func TestIDSuite(t *testing.T) {
	suite.Run(t, new(IDSuite))
}

func (s *IDSuite) TestParseTenantID() {
	s.Run("accepts opaque key", func() {
		id, err := ParseTenantID("acct_8f2k1")
		s.NoError(err)
		s.Equal("acct_8f2k1", id.String())
		s.False(id.IsNil())
	})

	s.Run("rejects empty", func() {
		_, err := ParseTenantID("")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects oversized", func() {
		_, err := ParseTenantID(strings.Repeat("x", 129))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *IDSuite) TestParseUserID() {
	s.Run("empty user is allowed for machine callers", func() {
		id, err := ParseUserID("")
		s.NoError(err)
		s.True(id.IsNil())
	})

	s.Run("rejects oversized", func() {
		_, err := ParseUserID(strings.Repeat("u", 200))
		s.Error(err)
	})
}

func (s *IDSuite) TestPlanValidity() {
	s.True(PlanFree.IsValid())
	s.True(PlanEnterprise.IsValid())
	s.False(Plan("platinum").IsValid())
}
