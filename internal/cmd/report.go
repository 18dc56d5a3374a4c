package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/labelflow/internal/errors"
)

// Report writes err for the user, styled by its severity. Errors that are not
// meant for users get a pointer to the log instead of extra detail.
func Report(w io.Writer, err error) {
	if err == nil {
		return
	}
	style := errorStyle
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		style = warningStyle
	}
	fmt.Fprintln(w, style.Render("Error: "+err.Error()))

	switch {
	case errors.Is(err, errors.ErrCanceled):
	case errors.IsRetryable(err):
		fmt.Fprintln(w, mutedStyle.Render("The server call failed; running the command again may succeed."))
	case !errors.IsUserFacing(err):
		fmt.Fprintln(w, mutedStyle.Render("Run 'labelflow logs --level error' for details."))
	}
}
