package render

import "bytes"

// colorizeSVG fills the {fill} and {stroke} placeholders of a piece template.
func colorizeSVG(tmpl []byte, fill, stroke string) []byte {
	out := bytes.ReplaceAll(tmpl, []byte("{fill}"), []byte(fill))
	return bytes.ReplaceAll(out, []byte("{stroke}"), []byte(stroke))
}
