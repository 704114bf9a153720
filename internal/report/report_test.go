package report

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoErrorReportedIsNil(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	reader, writer := r.Split()
	defer reader.Close()
	defer writer.Close()

	require.NoError(t, reader.CheckForReportedErrors())
}

func TestReportedErrorSurfacesMessage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	reader, writer := r.Split()
	defer reader.Close()
	defer writer.Close()

	require.NoError(t, writer.ReportError("mount failed: no such file or directory"))

	err = reader.CheckForReportedErrors()
	require.Error(t, err)
	require.Contains(t, err.Error(), "mount failed: no such file or directory")
}
