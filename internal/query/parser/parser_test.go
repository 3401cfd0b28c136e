package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdocs-query/internal/models"
)

func TestParse_RouterIPForCompany(t *testing.T) {
	p := New()

	got := p.Parse("What's the router IP for Acme Corp?")

	assert.Equal(t, models.IntentGetAttribute, got.Intent)
	assert.Equal(t, "router", got.EntityType)
	assert.Equal(t, "Acme Corp", got.Company)
	assert.Equal(t, []string{"ip"}, got.Attributes)
	assert.Equal(t, "What's the router IP for Acme Corp?", got.OriginalQuery)
	assert.Nil(t, got.Filters)
}

func TestParse_ListAllServers(t *testing.T) {
	got := New().Parse("List all servers")

	assert.Equal(t, models.IntentListEntities, got.Intent)
	assert.Equal(t, "server", got.EntityType)
	assert.Empty(t, got.Company)
	assert.Empty(t, got.Attributes)
}

func TestParse_Intents(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  models.Intent
	}{
		{"help keyword", "help", models.IntentHelp},
		{"capabilities", "What can you do?", models.IntentHelp},
		{"how many", "How many firewalls does Acme have?", models.IntentAggregate},
		{"count of", "count of printers at Globex", models.IntentAggregate},
		{"compare", "Compare the two core switches", models.IntentCompare},
		{"versus", "fortigate vs sonicwall", models.IntentCompare},
		{"show me all", "Show me all printers", models.IntentListEntities},
		{"what do they have", "what servers does Initech have", models.IntentListEntities},
		{"what is", "What is the hostname of the file server?", models.IntentGetAttribute},
		{"find", "find anything about the VPN", models.IntentSearch},
		{"wh question fallback", "when does the cert expire?", models.IntentGetAttribute},
		{"plain keywords", "backup schedule nightly", models.IntentSearch},
		{"blank", "   ", models.IntentUnknown},
		{"empty", "", models.IntentUnknown},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Parse(tt.query).Intent)
		})
	}
}

func TestParse_EntityTypeSynonyms(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"list the gateways", "router"},
		{"show me all VMs", "server"},
		{"which laptops are assigned to Bob", "workstation"},
		{"find the wildcard cert", "ssl_certificate"},
		{"where is the onboarding runbook", "document"},
		{"backup schedule", ""},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Parse(tt.query).EntityType)
		})
	}
}

func TestParse_Company(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"quoted", `list firewalls for company "Stark Industries"`, "Stark Industries"},
		{"for", "servers for Wayne Enterprises", "Wayne Enterprises"},
		{"at", "printers at Globex", "Globex"},
		{"in", "switches in Initech", "Initech"},
		{"possessive", "Umbrella's firewall password", "Umbrella"},
		{"does have", "How many printers does Initech have?", "Initech"},
		{"do use", "which firewalls do Stark Industries use", "Stark Industries"},
		{"punctuated suffix stripped", "router for Acme, Inc.", "Acme"},
		{"dotted suffix stripped", "router for Hooli Inc.", "Hooli"},
		{"lowercase is not a name", "servers for the office", ""},
		{"question word rejected", "What's the IP", ""},
		{"none", "list all servers", ""},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Parse(tt.query).Company)
		})
	}
}

func TestParse_AttributesInTableOrder(t *testing.T) {
	got := New().Parse("give me the password and ip address and serial number of the firewall")

	assert.Equal(t, []string{"ip", "password", "serial_number"}, got.Attributes)
}

func TestParse_Filters(t *testing.T) {
	tests := []struct {
		query string
		want  map[string]interface{}
	}{
		{"list inactive servers", map[string]interface{}{"status": "inactive"}},
		{"list active windows servers", map[string]interface{}{"status": "active", "os": "windows"}},
		{"latest linux workstations", map[string]interface{}{"sort": "updated_desc", "os": "linux"}},
		{"oldest printers", map[string]interface{}{"sort": "updated_asc"}},
		{"list all servers", nil},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Parse(tt.query).Filters)
		})
	}
}

func TestParse_Keywords(t *testing.T) {
	got := New().Parse("What is the backup schedule for the file server?")

	assert.Equal(t, []string{"backup", "schedule", "file", "server"}, got.Keywords)
	assert.Nil(t, New().Parse("is it on").Keywords)
}

func TestParse_Deterministic(t *testing.T) {
	p := New()
	queries := []string{
		"What's the router IP for Acme Corp?",
		"How many active windows servers at Globex?",
		"find the VPN runbook",
	}
	for _, q := range queries {
		first := p.Parse(q)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, p.Parse(q))
		}
	}
}

func TestParse_RoundTripThroughMap(t *testing.T) {
	parsed := New().Parse("What's the router IP for Acme Corp?")

	restored, err := models.ParsedQueryFromMap(parsed.ToMap())
	require.NoError(t, err)
	assert.Equal(t, parsed, restored)
}

func TestEnhanceWithContext(t *testing.T) {
	t.Run("fills missing company and entity type", func(t *testing.T) {
		parsed := New().Parse("what is the ip?")
		got := EnhanceWithContext(parsed, map[string]interface{}{
			"company":     "Acme",
			"entity_type": "firewall",
		})

		assert.Equal(t, "Acme", got.Company)
		assert.Equal(t, "firewall", got.EntityType)
	})

	t.Run("parsed values win", func(t *testing.T) {
		parsed := New().Parse("router ip for Globex")
		got := EnhanceWithContext(parsed, map[string]interface{}{
			"company":     "Acme",
			"entity_type": "firewall",
		})

		assert.Equal(t, "Globex", got.Company)
		assert.Equal(t, "router", got.EntityType)
	})

	t.Run("filters merge deeply without overwriting", func(t *testing.T) {
		parsed := New().Parse("list inactive servers")
		got := EnhanceWithContext(parsed, map[string]interface{}{
			"filters": map[string]interface{}{
				"status": "active",
				"tags":   map[string]interface{}{"env": "prod"},
			},
		})

		assert.Equal(t, "inactive", got.Filters["status"])
		assert.Equal(t, map[string]interface{}{"env": "prod"}, got.Filters["tags"])
	})

	t.Run("nil context is a no-op", func(t *testing.T) {
		parsed := New().Parse("list servers")
		assert.Same(t, parsed, EnhanceWithContext(parsed, nil))
	})
}
