package device

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type DescribeSuite struct {
	suite.Suite
}

func TestDescribeSuite(t *testing.T) {
	suite.Run(t, new(DescribeSuite))
}

func (s *DescribeSuite) TestDescribe() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", Describe(""))
		s.Equal("Unknown Device", Describe("   "))
	})

	s.Run("chrome on desktop includes browser and OS", func() {
		result := Describe("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		s.Contains(result, "Chrome")
		s.Contains(result, " on ")
		s.NotContains(result, "  ")
	})

	s.Run("firefox on linux includes browser", func() {
		result := Describe("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
		s.Contains(result, "Firefox")
		s.Contains(result, " on ")
	})

	s.Run("unrecognised agent still renders a label", func() {
		result := Describe("Unknown/1.0")
		s.NotEmpty(result)
		s.NotEqual("Unknown Device", result)
	})
}
