package query

// SemanticHint appends context to the embedding form of a query when any
// trigger substring appears in it. Triggers must be lowercase.
type SemanticHint struct {
	Triggers []string
	Context  string
}

// Tables holds the vocabulary a Processor works from. The zero value is a
// processor that filters nothing and expands nothing; most callers start
// from DefaultTables.
type Tables struct {
	StopWords      []string
	ImportantTerms []string
	Synonyms       map[string][]string
	Hints          []SemanticHint
}

// DefaultTables returns the built-in bilingual (Chinese/English) vocabulary,
// tuned for corporate-filings corpora: stop words for both languages,
// protected finance terms, synonym groups, and embedding hints for the
// meeting/report/voting topics.
func DefaultTables() Tables {
	return Tables{
		StopWords: []string{
			// Chinese
			"的", "了", "在", "是", "我", "有", "和", "就", "不", "人", "都", "一", "一个",
			"上", "也", "很", "到", "说", "要", "去", "你", "会", "着", "没有", "看", "好",
			"自己", "这", "那", "里", "就是", "还是", "为了", "还有", "可以", "这个", "那个",
			"什么", "怎么", "为什么", "哪里", "哪个", "怎样", "如何", "多少", "几个",
			// English
			"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of",
			"with", "by", "is", "are", "was", "were", "be", "been", "being", "have",
			"has", "had", "do", "does", "did", "will", "would", "could", "should",
			"may", "might", "must", "can", "this", "that", "these", "those", "i",
			"you", "he", "she", "it", "we", "they", "me", "him", "her", "us", "them",
		},
		ImportantTerms: []string{
			"股东大会", "年度报告", "财务报表", "董事会", "监事会", "审计", "合并", "收购",
			"投资", "利润", "营收", "资产", "负债", "现金流", "股价", "分红", "配股",
			"AGM", "annual meeting", "financial report", "board", "audit", "merger",
			"acquisition", "investment", "profit", "revenue", "assets", "liabilities",
			"cash flow", "stock price", "dividend",
		},
		Synonyms: map[string][]string{
			"股东大会": {"股东会议", "股东周年大会", "AGM", "annual general meeting"},
			"年度报告": {"年报", "annual report", "年度财务报告"},
			"财务报表": {"财报", "financial statement", "财务报告"},
			"董事会":  {"board of directors", "董事局"},
			"审计":   {"audit", "审计报告", "auditing"},
			"投资":   {"investment", "投资项目", "投资计划"},
			"收购":   {"acquisition", "并购", "merger"},
			"利润":   {"profit", "盈利", "净利润", "net profit"},
			"营收":   {"revenue", "收入", "营业收入"},
			"股价":   {"stock price", "股票价格", "share price"},
			"分红":   {"dividend", "股息", "派息"},
		},
		Hints: []SemanticHint{
			{
				Triggers: []string{"股东大会", "agm", "annual meeting"},
				Context:  "股东大会 年度会议",
			},
			{
				Triggers: []string{"财务", "financial", "报告", "report"},
				Context:  "财务报告 年度报告",
			},
			{
				Triggers: []string{"投票", "voting", "决议", "resolution"},
				Context:  "投票结果 股东决议",
			},
		},
	}
}
