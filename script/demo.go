package script

// DemoSource is a little demonstration Def: a service that doubles
// numbers.
//
// Send {"double":10} and the state becomes {"doubled":20}.
var DemoSource = `name: double
doc: |
  A little service that doubles numbers.

  Send {"double":10} and you'll see {"doubled":20}.
state: {}
reducer: |
  return _.event;
feedbacks:
- kind: extracting
  doc: |
    Doubles what arrives in a {"double":N} event.
  extract: |
    if (_.event.double !== undefined) return _.event.double;
    return null;
  effect: |
    _.out({"doubled": 2 * _.trigger});
`

// Demo parses DemoSource.
func Demo() (*Def, error) {
	return ParseDef([]byte(DemoSource))
}
