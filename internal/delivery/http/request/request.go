package request

// ResolveRequest is the body of POST /api/resolve. Pointers distinguish an
// absent field from an empty one.
type ResolveRequest struct {
	Store      *string   `json:"store"`
	References *[]string `json:"references"`
}

// LegacyPhotosRequest is the body of POST /fotos.
type LegacyPhotosRequest struct {
	Loja        *string   `json:"loja"`
	Referencias *[]string `json:"referencias"`
}
