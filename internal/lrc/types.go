package lrc

// Line is one line-synced lyric line.
type Line struct {
	StartMs int
	Text    string
}

// Tag is an LRC ID tag such as [ar:Queen].
type Tag struct {
	Key   string
	Value string
}

// Document is a parsed line-synced transcript. Lines keep file order.
type Document struct {
	Tags  []Tag
	Lines []Line
}

// Tag returns the value of the first tag with the given key.
func (d Document) Tag(key string) (string, bool) {
	for _, t := range d.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// RichLine is one word-synced line as delivered in richsync_body.
type RichLine struct {
	Start float64    `json:"ts"`
	End   float64    `json:"te"`
	Words []RichWord `json:"l"`
	Text  string     `json:"x"`
}

// RichWord is a word (or separator) with its offset from the line start, in seconds.
type RichWord struct {
	Text   string  `json:"c"`
	Offset float64 `json:"o"`
}
