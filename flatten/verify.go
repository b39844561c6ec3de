package flatten

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

func verifyConfig() *model.Configuration {
	// pdfcpu would otherwise create a configuration directory on first use.
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Verify checks that data is a valid PDF with wantPages pages. A negative
// wantPages skips the page count check.
func Verify(data []byte, wantPages int) error {
	conf := verifyConfig()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if wantPages < 0 {
		return nil
	}
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if n != wantPages {
		return fmt.Errorf("%w: %d pages, want %d", ErrVerificationFailed, n, wantPages)
	}
	return nil
}

// PageCount returns the number of pages pdfcpu finds in data.
func PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), verifyConfig())
}
