package core

// Create scans root, opens a fresh archive at output, and starts the
// compression session. The scan happens synchronously so an unusable
// root fails here, before any worker or output file exists; everything
// after that runs in the background until Wait returns.
func Create(root, output string, opts Options) (*Session, error) {
	opts.withDefaults()

	tasks, err := ScanRoot(root)
	if err != nil {
		return nil, err
	}

	w, err := newArchiveWriter(output)
	if err != nil {
		return nil, err
	}

	s := newSession(len(tasks))
	go func() {
		summary, err := s.run(tasks, w, opts)
		summary.Archive = output
		s.finish(summary, err)
	}()
	return s, nil
}
