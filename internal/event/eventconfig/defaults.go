package eventconfig

// DefaultYAML is used when no EVENT_CONFIG_PATH is given. It mirrors a minimal
// birth registration setup.
const DefaultYAML = `
events:
  - type: birth
    actions:
      - type: NOTIFY
      - type: DECLARE
        requiredFields: [child.name, child.dob]
        deduplicate: true
      - type: VALIDATE
      - type: REGISTER
        requiresConfirmation: true
      - type: REJECT
      - type: ARCHIVE
      - type: PRINT_CERTIFICATE
      - type: REQUEST_CORRECTION
      - type: APPROVE_CORRECTION
      - type: REJECT_CORRECTION
    duplicates:
      - id: same-child
        query:
          and:
            - field: child.name
              eq: { $form: child.name }
            - field: child.dob
              eq: { $form: child.dob }
            - field: child.dob
              dateBeforeNow: true
`

// Default parses DefaultYAML.
func Default() *Registry {
	r, err := Parse([]byte(DefaultYAML))
	if err != nil {
		panic(err)
	}
	return r
}
