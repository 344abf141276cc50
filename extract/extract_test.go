package extract

import (
	"io"
	"log/slog"
	"net/url"
	"testing"
)

func newTestSelector(t *testing.T, query string) *Selector {
	t.Helper()
	base, err := url.Parse("https://jmty.jp")
	if err != nil {
		t.Fatal(err)
	}
	return New(query, base, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractNewestListing(t *testing.T) {
	page := `<html><body>
		<div class="list_item">
			<a class="post-link" href="/tokyo/sale-sofa/article-abc123">
				3人掛けソファ 美品
			</a>
		</div>
		<div class="list_item">
			<a class="post-link" href="/tokyo/sale-desk/article-def456">学習机</a>
		</div>
	</body></html>`

	s := newTestSelector(t, DefaultQuery)

	listing, err := s.Extract([]byte(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if listing == nil {
		t.Fatal("Extract() = nil, want listing")
	}
	if listing.Title != "3人掛けソファ 美品" {
		t.Errorf("Title = %q", listing.Title)
	}
	if listing.Link != "https://jmty.jp/tokyo/sale-sofa/article-abc123" {
		t.Errorf("Link = %q, want normalized absolute URL", listing.Link)
	}
}

func TestExtractKeepsAbsoluteLink(t *testing.T) {
	page := `<div class="list_item"><a class="post-link" href="https://other.example/item/9">Item</a></div>`

	s := newTestSelector(t, DefaultQuery)

	listing, err := s.Extract([]byte(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if listing.Link != "https://other.example/item/9" {
		t.Errorf("Link = %q, want absolute href untouched", listing.Link)
	}
}

func TestExtractNoMatchIsNotAnError(t *testing.T) {
	page := `<html><body><p>結果が見つかりませんでした。</p></body></html>`

	s := newTestSelector(t, DefaultQuery)

	listing, err := s.Extract([]byte(page))
	if err != nil {
		t.Fatalf("Extract() error = %v, want nil", err)
	}
	if listing != nil {
		t.Errorf("Extract() = %+v, want nil for empty result set", listing)
	}
}

func TestExtractEmptyTitleIsNoListing(t *testing.T) {
	page := `<div class="list_item"><a class="post-link" href="/x">   </a></div>`

	s := newTestSelector(t, DefaultQuery)

	listing, err := s.Extract([]byte(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if listing != nil {
		t.Errorf("Extract() = %+v, want nil when title is blank", listing)
	}
}

func TestExtractCustomSelector(t *testing.T) {
	page := `<ul><li><a href="/article-1" class="item-name">中古自転車</a></li></ul>`

	s := newTestSelector(t, "a.item-name")

	listing, err := s.Extract([]byte(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if listing == nil || listing.Title != "中古自転車" {
		t.Fatalf("Extract() = %+v, want 中古自転車", listing)
	}
	if listing.Link != "https://jmty.jp/article-1" {
		t.Errorf("Link = %q", listing.Link)
	}
}
