package lex

import "strconv"

func parseInt(raw []byte) (int64, error) {
	return strconv.ParseInt(string(raw), 10, 64)
}

func parseFloat(raw []byte) (float64, error) {
	s := string(raw)
	// Tolerate PDF producers emitting a bare "." or "-." (no digits).
	if s == "" || s == "." || s == "-." || s == "+." {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
