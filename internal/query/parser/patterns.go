package parser

import (
	"regexp"

	"itdocs-query/internal/models"
)

type intentRule struct {
	intent   models.Intent
	patterns []*regexp.Regexp
}

// intentRules is evaluated top to bottom, then pattern by pattern. The first
// hit wins, so the order here decides ambiguous questions:
//
//	HELP          "help", "what can you do"
//	AGGREGATE     "how many firewalls does Acme have?"   (before GET_ATTRIBUTE's wh-forms)
//	COMPARE       "compare the two core switches"
//	LIST_ENTITIES "list all servers", "show me every printer"
//	GET_ATTRIBUTE "what's the router IP for Acme?"
//	SEARCH        "find anything about the VPN"
//
// Re-run the parser tests after any change to this table.
var intentRules = []intentRule{
	{
		intent: models.IntentHelp,
		patterns: compileAll(
			`^\s*help\b`,
			`\bwhat can you (?:do|help)`,
			`\bhow (?:do|can|should) i use\b`,
			`^\s*(?:usage|commands|examples)\s*\??\s*$`,
		),
	},
	{
		intent: models.IntentAggregate,
		patterns: compileAll(
			`\bhow many\b`,
			`\bcount (?:of|the|all|every)\b`,
			`^\s*count\b`,
			`\bnumber of\b`,
			`\btotal (?:number|count)\b`,
		),
	},
	{
		intent: models.IntentCompare,
		patterns: compileAll(
			`\bcompare\b`,
			`\bdifference(?:s)? between\b`,
			`\b(?:vs\.?|versus)\b`,
		),
	},
	{
		intent: models.IntentListEntities,
		patterns: compileAll(
			`^\s*list\b`,
			`^\s*(?:show|display|give|get)\s+(?:me\s+)?(?:all|every)\b`,
			`\b(?:list|enumerate)\s+(?:all|every|the)\b`,
			`\bwhat\s+\w+s\s+(?:do|does)\s+.+\s+have\b`,
		),
	},
	{
		intent: models.IntentGetAttribute,
		patterns: compileAll(
			`\b(?:what|which|where|who)(?:['’]s|\s+is|\s+are|\s+was|\s+were)\b`,
			`\b(?:get|give me|tell me|show me)\s+the\b`,
			`\b(?:ip|password|serial|hostname|mac)\b.*\bof\b`,
		),
	},
	{
		intent: models.IntentSearch,
		patterns: compileAll(
			`\b(?:search|find|look\s*up|locate)\b`,
			`\b(?:related to|regarding|about)\b`,
		),
	},
}

var whWord = regexp.MustCompile(`\b(?:what|which|where|who|when|how)\b`)

type synonymEntry struct {
	canonical string
	synonyms  []*regexp.Regexp
}

// entityTypeTable is scanned in order; the first entry with a matching
// synonym wins.
var entityTypeTable = []synonymEntry{
	{"firewall", words("firewall", "fw")},
	{"router", words("router", "gateway")},
	{"switch", words("switch", "core switch")},
	{"server", words("server", "virtual machine", "vm", "domain controller")},
	{"access_point", words("access point", "wap", "wireless")},
	{"workstation", words("workstation", "desktop", "laptop", "computer", "pc")},
	{"printer", words("printer", "copier", "mfp")},
	{"ssl_certificate", words("ssl certificate", "certificate", "cert")},
	{"domain", words("domain", "dns zone")},
	{"password", words("password", "credential", "login")},
	{"document", words("document", "documentation", "runbook", "procedure", "sop", "article")},
	{"contact", words("contact", "person", "people", "employee")},
	{"location", words("location", "site", "office", "branch")},
	{"configuration", words("configuration", "config", "device", "asset")},
	{"organization", words("organization", "company", "client", "customer")},
}

// attributeTable maps canonical attribute names to the phrases that request
// them. Every matching entry contributes, in table order.
var attributeTable = []synonymEntry{
	{"ip", words("ip", "ip address", "ipv4", "ipv6")},
	{"hostname", words("hostname", "host name", "fqdn")},
	{"password", words("password", "passwd", "credentials")},
	{"username", words("username", "user name", "login")},
	{"serial_number", words("serial", "serial number")},
	{"mac_address", words("mac", "mac address")},
	{"model", words("model")},
	{"manufacturer", words("manufacturer", "vendor")},
	{"os", words("os", "operating system")},
	{"firmware", words("firmware", "version")},
	{"location", words("location")},
	{"warranty", words("warranty")},
	{"expiration", words("expiration", "expiry", "expires")},
	{"phone", words("phone", "telephone", "mobile")},
	{"email", words("email", "e-mail")},
	{"url", words("url", "website", "link")},
	{"port", words("port")},
	{"notes", words("notes", "note")},
}

// companyPatterns run against the original-case text, in order.
var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:company)\s+["“']([^"”']+)["”']`),
	regexp.MustCompile(`\bfor\s+(` + properName + `)`),
	regexp.MustCompile(`\bat\s+(` + properName + `)`),
	regexp.MustCompile(`\bin\s+(` + properName + `)`),
	regexp.MustCompile(`\b(?:does|do)\s+(` + properName + `)\s+(?:have|own|use|run)\b`),
	regexp.MustCompile(`(` + properName + `)['’]s\b`),
}

const properName = `[A-Z0-9][\w&\-]*\.?(?:\s+[A-Z0-9][\w&\-]*\.?)*`

var (
	corporateSuffix = regexp.MustCompile(`(?:,\s*(?:Inc|LLC|Ltd|Corp|Co)\.?|\s+(?:Inc|Ltd|Corp|Co)\.|\s+L\.L\.C\.)$`)
	trailingPunct   = regexp.MustCompile(`[\s,;:!?]+$`)
	tokenPattern    = regexp.MustCompile(`[a-z0-9]+(?:['’._\-][a-z0-9]+)*`)
)

// nonCompanyWords are capitalized words the company patterns pick up that
// never name a company.
var nonCompanyWords = map[string]bool{
	"what": true, "what's": true, "who": true, "where": true, "when": true,
	"which": true, "how": true, "it": true, "that": true, "this": true,
	"there": true, "here": true, "i": true, "the": true, "a": true,
	"windows": true, "linux": true, "macos": true, "mac": true,
	"all": true, "every": true, "list": true, "show": true,
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "for": true, "in": true,
	"at": true, "on": true, "to": true, "from": true, "by": true, "with": true,
	"and": true, "or": true, "not": true, "what": true, "what's": true,
	"which": true, "who": true, "where": true, "when": true, "how": true,
	"why": true, "does": true, "do": true, "did": true, "can": true,
	"could": true, "would": true, "should": true, "me": true, "my": true,
	"our": true, "we": true, "you": true, "your": true, "it": true, "its": true,
	"this": true, "that": true, "these": true, "those": true, "there": true,
	"have": true, "has": true, "had": true, "all": true, "any": true,
	"some": true, "show": true, "list": true, "get": true, "give": true,
	"tell": true, "find": true, "please": true, "about": true, "many": true,
	"much": true, "company": true, "every": true,
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// words builds word-bounded matchers that also accept a plural suffix.
func words(phrases ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `(?:s|es)?\b`)
	}
	return out
}
