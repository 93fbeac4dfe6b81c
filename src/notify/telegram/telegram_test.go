package telegram

import (
	"testing"

	"github.com/stake-plus/fitbet/src/notify"
)

func TestKeyboardLayout(t *testing.T) {
	kb := Keyboard([][]notify.Action{
		{{Label: "Alice", Data: "vote_1_10"}, {Label: "Bob", Data: "vote_1_20"}},
		{},
		{{Label: "Paid", Data: "paid_3"}},
	})
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(kb.InlineKeyboard))
	}
	if got := kb.InlineKeyboard[0][1]; got.Text != "Bob" || got.CallbackData == nil || *got.CallbackData != "vote_1_20" {
		t.Fatalf("button = %+v", got)
	}
}

func TestKeyboardEmptyClearsButtons(t *testing.T) {
	kb := Keyboard(nil)
	if kb.InlineKeyboard == nil || len(kb.InlineKeyboard) != 0 {
		t.Fatalf("empty keyboard = %+v", kb.InlineKeyboard)
	}
}
