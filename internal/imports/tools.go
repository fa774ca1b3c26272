// Package imports pulls in every tool package so their init-time
// registration with the registry runs.
package imports

import (
	_ "github.com/sammcj/wrenchpdf/internal/tools/pdfcreator"
)
