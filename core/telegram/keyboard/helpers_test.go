package keyboard

import "testing"

func TestInlineButtonsRows(t *testing.T) {
	markup := InlineButtonsRows(
		[]InlineBtn{{Text: "Subscribe", URL: "https://t.me/news"}},
		[]InlineBtn{{Text: "Check", Unique: "check_subscription"}, {Text: "Copy", Unique: "copy_link", Data: "AB12CD34"}},
	)
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(markup.InlineKeyboard))
	}
	url := markup.InlineKeyboard[0][0]
	if url.URL != "https://t.me/news" || url.Data != "" {
		t.Fatalf("url button = %+v", url)
	}
	copyBtn := markup.InlineKeyboard[1][1]
	if copyBtn.Unique != "copy_link" || copyBtn.Data != "AB12CD34" {
		t.Fatalf("copy button = %+v", copyBtn)
	}
}

func TestInlineButtonsOnePerRow(t *testing.T) {
	markup := InlineButtons([]InlineBtn{{Text: "A", Unique: "a"}, {Text: "B", Unique: "b"}})
	if len(markup.InlineKeyboard) != 2 || len(markup.InlineKeyboard[0]) != 1 {
		t.Fatalf("keyboard = %+v", markup.InlineKeyboard)
	}
}
