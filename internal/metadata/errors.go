package metadata

import "github.com/bayardsearch/bayard/internal/apierr"

func errInvalid(format string, args ...any) error {
	return apierr.New(apierr.InvalidArgument, format, args...)
}

func errIncompatible(format string, args ...any) error {
	return apierr.New(apierr.SchemaIncompatible, format, args...)
}
