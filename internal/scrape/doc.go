// Package scrape collects the day's source items.
//
// Each configured source is fetched independently. HTML sources are read with
// a CSS selector (goquery); RSS and Atom sources are parsed with gofeed. When
// a source asks for it, linked article bodies are extracted with
// go-readability. A failing source contributes zero items and a SourceError;
// it never fails the whole scrape.
package scrape
