package clause

// Map is a where statement: column -> value. Keys are bare column names or
// "alias.column".
type Map map[string]any

// Clone returns a shallow copy of the map
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Sentinel marks a where value that is not a literal.
type Sentinel int

const (
	// Required marks a column the caller must constrain at the join site.
	// It is checked by the join resolver and never compiled.
	Required Sentinel = iota + 1

	// Passthrough is replaced at compile time by the query's passthrough
	// value for the same column.
	Passthrough

	// Undefined is an unset value. Compiling it always fails.
	Undefined
)

// String returns the sentinel name
func (s Sentinel) String() string {
	switch s {
	case Required:
		return "required"
	case Passthrough:
		return "passthrough"
	case Undefined:
		return "undefined"
	default:
		return "unknown"
	}
}

type nullValue struct{}

// Null is an explicit SQL NULL. It behaves exactly like a nil value.
var Null = nullValue{}

// Range bounds a column. A nil Begin or End leaves that side open.
type Range struct {
	Begin      any
	End        any
	ExcludeEnd bool
}

// Between returns the inclusive range [begin, end]
func Between(begin, end any) Range {
	return Range{Begin: begin, End: end}
}

// SimilarityKind selects a pg_trgm similarity function.
type SimilarityKind int

const (
	Similarity SimilarityKind = iota
	WordSimilarity
	StrictWordSimilarity
)

// String returns the SQL function name
func (k SimilarityKind) String() string {
	switch k {
	case WordSimilarity:
		return "word_similarity"
	case StrictWordSimilarity:
		return "strict_word_similarity"
	default:
		return "similarity"
	}
}

// defaultScore mirrors pg_trgm's default thresholds.
func (k SimilarityKind) defaultScore() float64 {
	switch k {
	case WordSimilarity:
		return 0.6
	case StrictWordSimilarity:
		return 0.5
	default:
		return 0.3
	}
}

// Fuzzy is a trigram similarity match against Text. A zero Score uses the
// pg_trgm default threshold for the kind.
type Fuzzy struct {
	Kind  SimilarityKind
	Text  string
	Score float64
}

// Similar builds a similarity match
func Similar(text string) Fuzzy { return Fuzzy{Kind: Similarity, Text: text} }

// WordSimilar builds a word_similarity match
func WordSimilar(text string) Fuzzy { return Fuzzy{Kind: WordSimilarity, Text: text} }

// StrictWordSimilar builds a strict_word_similarity match
func StrictWordSimilar(text string) Fuzzy { return Fuzzy{Kind: StrictWordSimilarity, Text: text} }

// WithScore returns a copy of f with an explicit threshold
func (f Fuzzy) WithScore(score float64) Fuzzy {
	f.Score = score
	return f
}

func (f Fuzzy) score() float64 {
	if f.Score == 0 {
		return f.Kind.defaultScore()
	}
	return f.Score
}

// Op is an explicit comparison operator with its operand.
type Op struct {
	Operator string
	Value    any
}

var validOperators = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "ILIKE": true, "NOT LIKE": true, "NOT ILIKE": true,
}

// Eq builds col = v
func Eq(v any) Op { return Op{"=", v} }

// NotEq builds col != v. NULL counts as not equal.
func NotEq(v any) Op { return Op{"!=", v} }

// LT builds col < v
func LT(v any) Op { return Op{"<", v} }

// LTE builds col <= v
func LTE(v any) Op { return Op{"<=", v} }

// GT builds col > v
func GT(v any) Op { return Op{">", v} }

// GTE builds col >= v
func GTE(v any) Op { return Op{">=", v} }

// Like builds col LIKE pattern
func Like(pattern string) Op { return Op{"LIKE", pattern} }

// ILike builds col ILIKE pattern
func ILike(pattern string) Op { return Op{"ILIKE", pattern} }

// NotLike builds col NOT LIKE pattern
func NotLike(pattern string) Op { return Op{"NOT LIKE", pattern} }

// NotILike builds col NOT ILIKE pattern
func NotILike(pattern string) Op { return Op{"NOT ILIKE", pattern} }

// ValueFunc produces a where value lazily, at compile time.
type ValueFunc func() any

// Subquery is a nested SELECT usable as the right-hand side of IN.
type Subquery interface {
	RenderSubquery(b *Builder) error
}
