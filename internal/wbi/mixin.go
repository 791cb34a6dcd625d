// Package wbi implementa la firma WBI que exige la API pública de Bilibili
// en endpoints sensibles (acc/info, arc/search, search/type, ...).
//
// Piezas:
//   - MixinKey: deriva la clave de 32 chars a partir de img_key + sub_key.
//   - Signer: agrega wts, serializa canónicamente y calcula w_rid (MD5).
//   - KeyCache: mantiene el par de claves del upstream con refresh lazy.
package wbi

import "fmt"

// mixinKeyEncTab es la permutación publicada por el upstream para derivar la
// mixin key. Es un artefacto opaco del proveedor: no modificar.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// MixinKeyLen es el largo de la clave derivada.
const MixinKeyLen = 32

// MixinKey concatena imgKey+subKey, la reordena con mixinKeyEncTab y devuelve
// los primeros 32 caracteres.
//
// La concatenación debe medir exactamente 64 bytes. Otro largo es un error de
// programación (las claves vienen validadas por KeyCache) y provoca panic.
func MixinKey(imgKey, subKey string) string {
	raw := imgKey + subKey
	if len(raw) != len(mixinKeyEncTab) {
		panic(fmt.Sprintf("wbi: mixin input must be %d bytes, got %d", len(mixinKeyEncTab), len(raw)))
	}
	out := make([]byte, MixinKeyLen)
	for i := 0; i < MixinKeyLen; i++ {
		out[i] = raw[mixinKeyEncTab[i]]
	}
	return string(out)
}
