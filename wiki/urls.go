package wiki

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// URLs is the analysed corpus. Its order is the order of every report.
var URLs = []string{
	"https://pl.wikipedia.org/wiki/ChatGPT",
	"https://pl.wikipedia.org/wiki/Retrieval-augmented_generation",
	"https://pl.wikipedia.org/wiki/PLLuM",
	"https://pl.wikipedia.org/wiki/Hugging_Face",
	"https://pl.wikipedia.org/wiki/PyTorch",
	"https://pl.wikipedia.org/wiki/TensorFlow",
	"https://pl.wikipedia.org/wiki/Kwazar",
	"https://pl.wikipedia.org/wiki/Blazar",
	"https://pl.wikipedia.org/wiki/Dysk_akrecyjny",
	"https://pl.wikipedia.org/wiki/Soczewkowanie_grawitacyjne",
	"https://pl.wikipedia.org/wiki/Ciemna_energia",
	"https://pl.wikipedia.org/wiki/Zbrojni",
	"https://pl.wikipedia.org/wiki/Muzyka_duszy",
	"https://pl.wikipedia.org/wiki/Pale_Blue_Dot",
	"https://pl.wikipedia.org/wiki/The_Blue_Marble",
	"https://pl.wikipedia.org/wiki/Hekabe",
	"https://pl.wikipedia.org/wiki/Achilles",
	"https://pl.wikipedia.org/wiki/Agamemnon",
	"https://pl.wikipedia.org/wiki/Sen_Agamemnona",
	"https://pl.wikipedia.org/wiki/Penelopa",
}

// hashSize is the SHAKE-256 output length in bytes; ids are twice as long in hex.
const hashSize = 8

// HashURL returns the record id of url: SHAKE-256, 8 bytes, lowercase hex.
func HashURL(url string) string {
	out := make([]byte, hashSize)
	sha3.ShakeSum256(out, []byte(url))
	return hex.EncodeToString(out)
}

// HashedURLs returns the ids of URLs in corpus order.
func HashedURLs() []string {
	ids := make([]string, len(URLs))
	for i, u := range URLs {
		ids[i] = HashURL(u)
	}
	return ids
}

// Mapping maps every corpus id back to its URL.
func Mapping() map[string]string {
	m := make(map[string]string, len(URLs))
	for _, u := range URLs {
		m[HashURL(u)] = u
	}
	return m
}

// QueryText derives a search phrase from an article URL: the last path
// segment with underscores turned into spaces.
func QueryText(url string) string {
	segment := url
	if i := strings.LastIndex(url, "/"); i >= 0 {
		segment = url[i+1:]
	}
	return strings.ReplaceAll(segment, "_", " ")
}
