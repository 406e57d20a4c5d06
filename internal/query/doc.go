// Package query derives the search forms of a raw query string.
//
// One Processor serves all retrieval paths: keywords for score boosting,
// an FTS5 MATCH expression for lexical search, an enriched form for
// embedding, and synonym variants for recall. The processor is tuned for
// mixed Chinese/English text, where whitespace tokenization alone loses
// most of the signal.
//
// # Usage
//
//	p := query.New(query.DefaultTables())
//
//	p.Keywords("腾讯 0700 年度报告")
//	// ["0700", "腾讯", "年度报告"]
//
//	p.LexicalForm("腾讯 0700")
//	// `0700 OR 腾讯 OR "0700 腾讯" OR 腾 OR 讯`
//
//	p.SemanticForm("annual meeting results")
//	// "annual meeting results 股东大会 年度会议"
//
// # Forms
//
// Keywords are digit runs, CJK runs of two or more characters, and words
// that survive the stop-word filter. Important terms (AGM, 审计, ...) are
// never filtered, regardless of length.
//
// LexicalForm trades precision for recall: individual keywords OR-joined,
// the keyword phrase quoted, and CJK keywords decomposed into characters.
// Terms that FTS5 would read as syntax (reserved words, embedded specials)
// are quoted with doubled quotes.
// FallbackForm is the deliberately boring variant, plain OR of quoted
// keywords, used when the store rejects the primary form.
//
// SemanticForm keeps the query as natural language and appends topic
// context so short queries embed closer to their subject area.
//
// # Vocabulary
//
// All tables are constructor parameters. DefaultTables carries bilingual
// stop words, protected corporate-filings terminology, synonym groups, and
// topic hints; callers with other corpora supply their own Tables.
package query
