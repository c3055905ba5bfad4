package qwen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sgtokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// SugarmeTokenizer adapts github.com/sugarme/tokenizer to the Tokenizer
// interface, so the engine is exercisable without every caller having to
// write its own adapter. Chat templating and HF Hub fetching (the
// teacher's original Tokenizer wrapper did both) are tokenizer-
// implementation concerns the spec places out of scope; this adapter only
// does plain encode/decode.
type SugarmeTokenizer struct {
	tok *sgtokenizer.Tokenizer
}

// LoadSugarmeTokenizer loads a tokenizer.json file from a local path.
func LoadSugarmeTokenizer(tokenizerJSONPath string) (*SugarmeTokenizer, error) {
	sanitizedPath, err := sanitizeTokenizerJSON(tokenizerJSONPath)
	if err != nil {
		return nil, wrapErr(KindTokenizer, err, "sanitizing tokenizer json %s", tokenizerJSONPath)
	}
	tok, err := pretrained.FromFile(sanitizedPath)
	if err != nil {
		return nil, wrapErr(KindTokenizer, err, "loading tokenizer from %s", tokenizerJSONPath)
	}
	return &SugarmeTokenizer{tok: tok}, nil
}

// sanitizeTokenizerJSON rewrites the negative-lookahead pretokenizer pattern
// real GPT-2/Qwen BPE tokenizer.json files declare (`\s+(?!\S)`) into a form
// Go's RE2 engine can compile, writing the result alongside the original.
// Ported from the teacher's transformers/tokenizer.go, whose
// sugarme/tokenizer dependency fails to load an unsanitized file the same
// way here.
func sanitizeTokenizerJSON(origPath string) (string, error) {
	raw, err := os.ReadFile(origPath)
	if err != nil {
		return "", err
	}

	content := string(raw)
	content = strings.ReplaceAll(content, `\s+(?!\S)`, `\s+`)
	content = strings.ReplaceAll(content, `\\s+(?!\\S)`, `\\s+`)

	dir := filepath.Dir(origPath)
	sanitizedPath := filepath.Join(dir, "tokenizer_sanitized.json")
	if err := os.WriteFile(sanitizedPath, []byte(content), 0o644); err != nil {
		return "", err
	}
	return sanitizedPath, nil
}

// Encode implements Tokenizer.
func (t *SugarmeTokenizer) Encode(text string) ([]int64, error) {
	enc, err := t.tok.EncodeSingle(text, true)
	if err != nil {
		return nil, wrapErr(KindTokenizer, err, "encoding text")
	}
	out := make([]int64, len(enc.Ids))
	for i, v := range enc.Ids {
		out[i] = int64(v)
	}
	return out, nil
}

// Decode implements Tokenizer.
func (t *SugarmeTokenizer) Decode(ids []int64, skipSpecial bool) (string, error) {
	uids := make([]int, len(ids))
	for i, v := range ids {
		uids[i] = int(v)
	}
	return t.tok.Decode(uids, skipSpecial), nil
}

// Info returns a short human-readable description, mirroring the teacher's
// Tokenizer.Info().
func (t *SugarmeTokenizer) Info() string {
	return fmt.Sprintf("SugarmeTokenizer(vocab=%d)", t.tok.GetVocabSize(true))
}
