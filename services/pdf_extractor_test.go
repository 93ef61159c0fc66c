package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

func TestJoinRow(t *testing.T) {
	tests := []struct {
		name  string
		texts []pdf.Text
		want  string
	}{
		{
			name: "adjacent glyphs",
			texts: []pdf.Text{
				{S: "Q", X: 10, W: 6, FontSize: 12},
				{S: "1.", X: 16, W: 8, FontSize: 12},
			},
			want: "Q1.",
		},
		{
			name: "word gap",
			texts: []pdf.Text{
				{S: "What", X: 10, W: 24, FontSize: 12},
				{S: "is", X: 38, W: 10, FontSize: 12},
			},
			want: "What is",
		},
		{
			name: "explicit spaces collapse",
			texts: []pdf.Text{
				{S: "(a) ", X: 10, W: 20, FontSize: 12},
				{S: "  Paris", X: 60, W: 30, FontSize: 12},
			},
			want: "(a) Paris",
		},
		{name: "empty", texts: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinRow(tt.texts); got != tt.want {
				t.Errorf("joinRow() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractText_Unreadable(t *testing.T) {
	p := NewPDFExtractor(utils.NewNopLogger())

	for name, content := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("%PDF-1.4\nthis is not really a pdf"),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := p.ExtractText(context.Background(), content); !errors.Is(err, ErrUnreadablePDF) {
				t.Errorf("expected ErrUnreadablePDF, got %v", err)
			}
		})
	}
}
