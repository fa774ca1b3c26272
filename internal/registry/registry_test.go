package registry

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestCleanupFuncsRunOnceInOrder(t *testing.T) {
	var order []int
	RegisterCleanup(func() { order = append(order, 1) })
	RegisterCleanup(func() { order = append(order, 2) })

	RunCleanups()
	assert.Equal(t, []int{1, 2}, order)

	// A second run does not repeat consumed hooks
	RunCleanups()
	assert.Equal(t, []int{1, 2}, order)
}

func TestShouldRegisterTool(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	Init(logger)

	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "")
	assert.False(t, ShouldRegisterTool("pdf_creator"), "pdf_creator requires opt-in")

	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "pdf_creator")
	assert.True(t, ShouldRegisterTool("pdf_creator"))

	t.Setenv("ENABLE_ADDITIONAL_TOOLS", "all")
	assert.True(t, ShouldRegisterTool("pdf_creator"))
}
