package dictionary

// Entry is one sense of a word as seeded from the dataset.
// Several entries may share a word.
type Entry struct {
	ID           int64  `db:"id"`
	Word         string `db:"word"`
	PartOfSpeech string `db:"pos"`
	Definition   string `db:"definition"`
}
