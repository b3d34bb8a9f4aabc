// Package textutil provides the title normalization shared by the matcher, the
// rating source client, and the enrichment cache.
//
// Normalization lowercases, strips diacritics and punctuation, and collapses
// whitespace so "Amélie" and "amelie" compare equal. Slugs are derived from
// the normalized form.
package textutil
