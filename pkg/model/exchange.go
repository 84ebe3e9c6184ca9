package model

import "strconv"

const indexIDPrefix = "query_"

// Exchange is one persisted (query, response) pair. Seq is the 1-based position in the log.
type Exchange struct {
	Seq      int    `json:"seq"`
	Query    string `json:"query"`
	Response string `json:"response"`
}

// IndexID returns the similarity index key for the n-th exchange
func IndexID(seq int) string {
	return indexIDPrefix + strconv.Itoa(seq)
}

// ParseIndexID extracts the sequence number from an index key
func ParseIndexID(id string) (int, bool) {
	if len(id) <= len(indexIDPrefix) || id[:len(indexIDPrefix)] != indexIDPrefix {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(indexIDPrefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
