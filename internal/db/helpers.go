package db

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
