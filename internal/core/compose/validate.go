package compose

// Validate checks that content is a compose document with the minimal shape the
// routing layer needs: a YAML mapping with a non-empty services mapping whose
// first entry is itself a mapping. It does not check the full compose schema;
// see Lint for that.
func Validate(content string) error {
	doc, err := Parse(content)
	if err != nil {
		return err
	}
	_, err = doc.FirstService()
	return err
}
