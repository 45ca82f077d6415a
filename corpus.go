package qcorpus

// Corpus is a fixed, ordered collection of question records. It is built
// once and only read afterwards.
type Corpus struct {
	questions []*Question
}

// NewCorpus copies questions into a new corpus. Nil entries are dropped.
func NewCorpus(questions []*Question) *Corpus {
	c := &Corpus{questions: make([]*Question, 0, len(questions))}
	for _, q := range questions {
		if q != nil {
			c.questions = append(c.questions, q)
		}
	}
	return c
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	return len(c.questions)
}

// At returns the i-th record.
func (c *Corpus) At(i int) *Question {
	return c.questions[i]
}

// Questions returns the records in order. The slice is a copy.
func (c *Corpus) Questions() []*Question {
	return append([]*Question(nil), c.questions...)
}

// Valid returns a corpus holding only the records with enough
// alternatives.
func (c *Corpus) Valid() *Corpus {
	var valid []*Question
	for _, q := range c.questions {
		if q.IsValid() {
			valid = append(valid, q)
		}
	}
	return NewCorpus(valid)
}
