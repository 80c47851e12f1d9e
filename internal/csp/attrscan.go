package csp

import "bytes"

var nonceAttr = []byte("nonce")

// rawAttr 记录一个属性在原始标签字节中的位置。
type rawAttr struct {
	key              []byte
	keyEnd           int
	hasEq            bool
	quote            byte // 0 表示未加引号
	valStart, valEnd int
}

// scanAttrs 从 raw[i:] 开始扫描开始标签的属性，切分规则与
// html.Tokenizer 的 readTagAttrKey/readTagAttrVal 一致。
// raw 必须是完整的开始标签（以 '>' 结尾）。
func scanAttrs(raw []byte, i int) []rawAttr {
	var attrs []rawAttr
	for {
		i = skipSpace(raw, i)
		if i >= len(raw) || raw[i] == '>' {
			return attrs
		}
		keyStart := i
		keyEnd, next := scanAttrKey(raw, i)
		a := rawAttr{key: raw[keyStart:keyEnd], keyEnd: keyEnd}
		next = scanAttrVal(raw, next, &a)
		if keyEnd > keyStart {
			attrs = append(attrs, a)
		}
		i = next
	}
}

// scanAttrKey 返回属性名的结束位置和下一个待读位置。
// 空白和 '/' 会被吞掉；'>' 和非首字符的 '=' 留给后续处理。
func scanAttrKey(raw []byte, i int) (end, next int) {
	start := i
	for ; i < len(raw); i++ {
		c := raw[i]
		switch {
		case isSpace(c) || c == '/':
			return i, i + 1
		case c == '>' || (c == '=' && i != start):
			return i, i
		}
	}
	return i, i
}

func scanAttrVal(raw []byte, i int, a *rawAttr) int {
	a.valStart, a.valEnd = i, i
	j := skipSpace(raw, i)
	if j >= len(raw) || raw[j] != '=' {
		return j
	}
	a.hasEq = true
	j = skipSpace(raw, j+1)
	if j >= len(raw) {
		return j
	}

	switch q := raw[j]; q {
	case '>':
		// nonce=> 这种空值，在 '>' 前补值
		a.valStart, a.valEnd = j, j
		return j
	case '\'', '"':
		a.quote = q
		a.valStart = j + 1
		k := bytes.IndexByte(raw[j+1:], q)
		if k < 0 {
			a.valEnd = len(raw)
			return len(raw)
		}
		a.valEnd = j + 1 + k
		return a.valEnd + 1
	default:
		a.valStart = j
		for k := j; k < len(raw); k++ {
			if isSpace(raw[k]) {
				a.valEnd = k
				return k + 1
			}
			if raw[k] == '>' {
				a.valEnd = k
				return k
			}
		}
		a.valEnd = len(raw)
		return len(raw)
	}
}

func skipSpace(raw []byte, i int) int {
	for i < len(raw) && isSpace(raw[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\n', '\r', '\t', '\f':
		return true
	}
	return false
}
