// Package schemas defines the JSON documents served by the stats endpoint.
package schemas

// Similarity compares two articles; Urls reads "url1 vs url2".
type Similarity struct {
	Urls        string  `json:"urls"`
	OpenAI      float64 `json:"openai"`
	HuggingFace float64 `json:"huggingface"`
}

// Noun is a lemma with its frequency under each NLP pipeline.
type Noun struct {
	Noun   string `json:"noun"`
	Stanza int    `json:"stanza"`
	Spacy  int    `json:"spacy"`
}

// Nouns lists the frequent nouns of one article.
type Nouns struct {
	URL   string `json:"url"`
	Nouns []Noun `json:"nouns"`
}

// ChromaSearch holds the nearest articles to the title of URL in each
// embedding collection.
type ChromaSearch struct {
	URL                    string   `json:"url"`
	QueryText              string   `json:"query_text"`
	OpenAITop5Results      []string `json:"openai_top5_results"`
	HuggingFaceTop5Results []string `json:"huggingface_top5_results"`
}

type FinalResponse struct {
	ChromaDBTop5 []ChromaSearch `json:"chromadb_top5"`
	Similarities []Similarity   `json:"similarities"`
	Nouns        []Nouns        `json:"nouns"`
}
