// Package payer extracts the paying student's name from a transfer description.
package payer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/kasa/internal/common"
)

// Channel is the banking channel a transfer came through.
type Channel string

// Known channels.
const (
	ChannelFAST    Channel = "FAST"
	ChannelMobile  Channel = "CEP_SUBE"
	ChannelPOS     Channel = "POS"
	ChannelUnknown Channel = "UNKNOWN"
)

// ErrPOS marks card-terminal payments, which carry no payer name.
var ErrPOS = fmt.Errorf("%w: card terminal payment", common.ErrPayerNotResolved)

// NameExtractor pulls person names out of a free-text payment note,
// excluding the sender.
type NameExtractor interface {
	ExtractNames(ctx context.Context, info, sender string) ([]string, error)
}

// Result is a resolved payer.
type Result struct {
	Name    string
	Sender  string
	Info    string
	Channel Channel
}

// Resolver applies channel-specific description rules.
type Resolver struct {
	extractor NameExtractor
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil extractor disables note parsing and
// the sender is always used.
func NewResolver(extractor NameExtractor, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{extractor: extractor, logger: logger}
}

// Resolve returns the payer for a transfer description. When the note names
// somebody other than the sender, e.g. a parent paying for a student, that
// name wins.
func (r *Resolver) Resolve(ctx context.Context, description string) (Result, error) {
	res, err := Parse(description)
	if err != nil {
		return res, err
	}
	if res.Info == "" || r.extractor == nil {
		return res, nil
	}

	names, err := r.extractor.ExtractNames(ctx, res.Info, res.Sender)
	if err != nil {
		r.logger.Warn("Name extraction failed, using sender",
			"sender", res.Sender,
			"error", err)
		return res, nil
	}
	for _, n := range names {
		n = normalizeName(n)
		if n != "" && common.Fold(n) != common.Fold(res.Sender) {
			res.Name = n
			break
		}
	}
	return res, nil
}

// Parse splits a description by channel without consulting the extractor.
//
//	FAST-<sender>-<note>
//	CEP ŞUBE-<ref>-<note>-<sender>
//	PK...            card terminal
func Parse(description string) (Result, error) {
	desc := strings.TrimSpace(description)
	folded := common.Fold(desc)

	switch {
	case strings.HasPrefix(folded, "PK"):
		return Result{Channel: ChannelPOS}, ErrPOS
	case strings.HasPrefix(folded, "FAST"):
		parts := strings.Split(desc, "-")
		res := Result{Channel: ChannelFAST, Sender: part(parts, 1), Info: part(parts, 2)}
		return finish(res, desc)
	case strings.HasPrefix(folded, "CEP SUBE"):
		parts := strings.Split(desc, "-")
		res := Result{Channel: ChannelMobile, Info: part(parts, 2), Sender: part(parts, 3)}
		return finish(res, desc)
	default:
		return Result{Channel: ChannelUnknown}, fmt.Errorf("%w: unrecognised description %q", common.ErrPayerNotResolved, common.Truncate(desc, 60))
	}
}

func finish(res Result, desc string) (Result, error) {
	res.Sender = normalizeName(res.Sender)
	res.Info = strings.TrimSpace(res.Info)
	if res.Sender == "" {
		return res, fmt.Errorf("%w: no sender in %q", common.ErrPayerNotResolved, common.Truncate(desc, 60))
	}
	res.Name = res.Sender
	return res, nil
}

func part(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SameName reports whether two resolved names refer to the same payer.
func SameName(a, b string) bool {
	return a != "" && common.Fold(a) == common.Fold(b)
}

// Surname returns the last token of a full name.
func Surname(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
