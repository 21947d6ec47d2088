package config

// EmitterOpts configures the writer-side layer.remote/layer.display_name
// pair: the peer this process streams to, and how it identifies itself.
type EmitterOpts struct {
	// Remote is the reader's hex-encoded Noise static public key. Empty
	// means the tracing layer stays Disabled (no remote identity
	// configured, per spec.md §4.4).
	Remote string
	// DisplayName overrides the default hostname-derived display name
	// sent in Claims.
	DisplayName string
}

// LoadEmitterOpts reads layer.remote/layer.display_name from path (or
// LAMINAR_CONFIG if set), then applies LAMINAR_LAYER_REMOTE /
// LAMINAR_LAYER_DISPLAY_NAME overrides.
func LoadEmitterOpts(path string) (EmitterOpts, error) {
	doc, err := loadFileDoc(path)
	if err != nil {
		return EmitterOpts{}, err
	}

	opts := EmitterOpts{Remote: doc.Layer.Remote, DisplayName: doc.Layer.DisplayName}
	if v, ok := envOverride("layer.remote"); ok {
		opts.Remote = v
	}
	if v, ok := envOverride("layer.display_name"); ok {
		opts.DisplayName = v
	}
	return opts, nil
}
