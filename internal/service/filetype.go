package service

import (
	"fmt"
	"strings"

	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
)

// AllowedFileTypes is the fixed set of extensions the document extractor
// understands.
var AllowedFileTypes = []string{
	"pdf", "docx", "doc", "xlsx", "xls", "pptx", "ppt",
	"odt", "ods", "odp", "txt", "md", "csv", "json",
	"xml", "html", "htm", "rtf",
}

var allowedFileTypeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(AllowedFileTypes))
	for _, ext := range AllowedFileTypes {
		set[ext] = struct{}{}
	}
	return set
}()

// ValidateFileType accepts or rejects a file name by the lowercase suffix
// after its last dot. Pure: same name, same decision.
func ValidateFileType(name string) error {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return unsupportedFileType()
	}
	ext := strings.ToLower(name[idx+1:])
	if _, ok := allowedFileTypeSet[ext]; !ok {
		return unsupportedFileType()
	}
	return nil
}

func unsupportedFileType() error {
	return apperrors.New(apperrors.ErrUnsupportedFileType,
		fmt.Sprintf("File type not allowed. Allowed types are: %s", strings.Join(AllowedFileTypes, ", ")), nil)
}
