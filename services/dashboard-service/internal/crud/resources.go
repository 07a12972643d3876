package crud

// Resources lists every table served through the factory. Appointments and
// portal sessions are written by their own services and are read-only here.
func Resources() []*Resource {
	return []*Resource{
		{
			Name:  "appointments",
			Table: "appointments",
			Columns: []Column{
				{Name: "service_id", Kind: UUID},
				{Name: "staff_id", Kind: UUID},
				{Name: "client_id", Kind: UUID},
				{Name: "client_name", Kind: Text},
				{Name: "client_email", Kind: Text},
				{Name: "status", Kind: Text},
				{Name: "start_time", Kind: Time},
			},
			Filterable:  []string{"service_id", "staff_id", "client_id", "status"},
			Sortable:    []string{"start_time", "created_at"},
			Searchable:  []string{"client_name", "client_email", "client_phone"},
			DefaultSort: "-start_time",
			ReadOnly:    true,
		},
		{
			Name:  "invoices",
			Table: "invoices",
			Columns: []Column{
				{Name: "client_id", Kind: UUID},
				{Name: "number", Kind: Text, Rules: "max=40"},
				{Name: "status", Kind: Text, Rules: "oneof=draft sent paid void"},
				{Name: "line_items", Kind: JSON, Rules: "max=20000"},
				{Name: "subtotal_cents", Kind: Int, Rules: "min=0"},
				{Name: "tax_cents", Kind: Int, Rules: "min=0"},
				{Name: "total_cents", Kind: Int, Rules: "min=0"},
				{Name: "currency", Kind: Text, Rules: "len=3"},
				{Name: "due_date", Kind: Time},
				{Name: "notes", Kind: Text, Rules: "max=2000"},
			},
			Required:        []string{"number", "total_cents"},
			Filterable:      []string{"client_id", "status", "currency"},
			Sortable:        []string{"created_at", "due_date", "total_cents", "number"},
			Searchable:      []string{"number", "notes"},
			OptionalColumns: []string{"notes"},
			DefaultSort:     "-created_at",
			SoftDelete:      true,
		},
		{
			Name:  "social_posts",
			Table: "social_posts",
			Columns: []Column{
				{Name: "content", Kind: Text, Rules: "max=5000"},
				{Name: "media_url", Kind: Text, Rules: "url,max=2000"},
				{Name: "platforms", Kind: JSON},
				{Name: "status", Kind: Text, Rules: "oneof=draft scheduled"},
				{Name: "scheduled_at", Kind: Time},
			},
			Required:    []string{"content"},
			Filterable:  []string{"status"},
			Sortable:    []string{"created_at", "scheduled_at", "published_at"},
			Searchable:  []string{"content"},
			DefaultSort: "-created_at",
			SoftDelete:  true,
		},
		{
			Name:  "reviews",
			Table: "reviews",
			Columns: []Column{
				{Name: "author_name", Kind: Text, Rules: "max=120"},
				{Name: "rating", Kind: Int, Rules: "min=1,max=5"},
				{Name: "body", Kind: Text, Rules: "max=5000"},
				{Name: "source", Kind: Text, Rules: "oneof=google facebook yelp manual"},
				{Name: "reply", Kind: Text, Rules: "max=5000"},
				{Name: "review_date", Kind: Time},
			},
			Required:    []string{"author_name", "rating"},
			Filterable:  []string{"rating", "source"},
			Sortable:    []string{"created_at", "review_date", "rating"},
			Searchable:  []string{"author_name", "body"},
			DefaultSort: "-created_at",
			SoftDelete:  true,
		},
		{
			Name:  "team_members",
			Table: "team_members",
			Columns: []Column{
				{Name: "name", Kind: Text, Rules: "max=120"},
				{Name: "email", Kind: Text, Rules: "email"},
				{Name: "phone", Kind: Text, Rules: "max=40"},
				{Name: "role", Kind: Text, Rules: "oneof=admin staff"},
				{Name: "color", Kind: Text, Rules: "hexcolor"},
				{Name: "active", Kind: Bool},
				{Name: "bookable", Kind: Bool},
			},
			Required:        []string{"name"},
			Filterable:      []string{"role", "active", "bookable"},
			Sortable:        []string{"created_at", "name"},
			Searchable:      []string{"name", "email"},
			OptionalColumns: []string{"color"},
			DefaultSort:     "created_at",
			SoftDelete:      true,
		},
		{
			Name:  "services",
			Table: "services",
			Columns: []Column{
				{Name: "name", Kind: Text, Rules: "max=120"},
				{Name: "description", Kind: Text, Rules: "max=2000"},
				{Name: "duration_minutes", Kind: Int, Rules: "min=5,max=720"},
				{Name: "price_cents", Kind: Int, Rules: "min=0"},
				{Name: "active", Kind: Bool},
			},
			Required:    []string{"name", "duration_minutes"},
			Filterable:  []string{"active"},
			Sortable:    []string{"created_at", "name", "price_cents"},
			Searchable:  []string{"name"},
			DefaultSort: "name",
			SoftDelete:  true,
		},
		{
			Name:  "menu_items",
			Table: "menu_items",
			Columns: []Column{
				{Name: "name", Kind: Text, Rules: "max=120"},
				{Name: "description", Kind: Text, Rules: "max=2000"},
				{Name: "category", Kind: Text, Rules: "max=60"},
				{Name: "price_cents", Kind: Int, Rules: "min=0"},
				{Name: "active", Kind: Bool},
			},
			Required:    []string{"name", "price_cents"},
			Filterable:  []string{"category", "active"},
			Sortable:    []string{"created_at", "name", "price_cents", "category"},
			Searchable:  []string{"name", "category"},
			DefaultSort: "category",
			SoftDelete:  true,
		},
		{
			Name:  "clients",
			Table: "clients",
			Columns: []Column{
				{Name: "name", Kind: Text, Rules: "max=200"},
				{Name: "email", Kind: Text, Rules: "email"},
				{Name: "phone", Kind: Text, Rules: "max=40"},
				{Name: "notes", Kind: Text, Rules: "max=5000"},
				{Name: "tags", Kind: JSON},
			},
			Required:    []string{"name"},
			Filterable:  []string{"email"},
			Sortable:    []string{"created_at", "name"},
			Searchable:  []string{"name", "email", "phone"},
			Hidden:      []string{"access_code_hash"},
			DefaultSort: "name",
			SoftDelete:  true,
			Indexed:     true,
		},
		{
			Name:  "records",
			Table: "records",
			Columns: []Column{
				{Name: "entity_type", Kind: Text, Rules: "max=60"},
				{Name: "title", Kind: Text, Rules: "max=200"},
				{Name: "data", Kind: JSON, Rules: "max=100000"},
				{Name: "stage_id", Kind: Text, Rules: "max=64"},
				{Name: "client_id", Kind: UUID},
				{Name: "amount_cents", Kind: Int},
			},
			Required:        []string{"entity_type"},
			Filterable:      []string{"entity_type", "stage_id", "client_id"},
			Sortable:        []string{"created_at", "updated_at", "title", "amount_cents"},
			Searchable:      []string{"title", "data"},
			OptionalColumns: []string{"amount_cents"},
			DefaultSort:     "-created_at",
			SoftDelete:      true,
			Indexed:         true,
		},
		{
			Name:  "portal_sessions",
			Table: "portal_sessions",
			Columns: []Column{
				{Name: "client_id", Kind: UUID},
			},
			Filterable:  []string{"client_id"},
			Sortable:    []string{"created_at", "expires_at"},
			Hidden:      []string{"token_hash"},
			DefaultSort: "-created_at",
			ReadOnly:    true,
		},
	}
}
