package transmit

// nearbyKeys maps characters to keys physically close on a QWERTY keyboard.
// Used by the typo simulation to pick a plausible wrong key.
var nearbyKeys = map[rune][]rune{
	'q': {'w', 'a', 's'}, 'w': {'q', 'e', 's', 'd', 'a'}, 'e': {'w', 'r', 'd', 'f', 's'}, 'r': {'e', 't', 'f', 'g', 'd'},
	't': {'r', 'y', 'g', 'h', 'f'}, 'y': {'t', 'u', 'h', 'j', 'g'}, 'u': {'y', 'i', 'j', 'k', 'h'}, 'i': {'u', 'o', 'k', 'l', 'j'},
	'o': {'i', 'p', 'l', ';', 'k'}, 'p': {'o', '[', ';', ':', 'l'}, 'a': {'q', 'w', 's', 'z', 'x'}, 's': {'a', 'd', 'w', 'e', 'x', 'z', 'c'},
	'd': {'s', 'f', 'e', 'r', 'x', 'c', 'v'}, 'f': {'d', 'g', 'r', 't', 'c', 'v', 'b'}, 'g': {'f', 'h', 't', 'y', 'v', 'b', 'n'},
	'h': {'g', 'j', 'y', 'u', 'b', 'n', 'm'}, 'j': {'h', 'k', 'u', 'i', 'n', 'm', ','}, 'k': {'j', 'l', 'i', 'o', 'm', ',', '.'},
	'l': {'k', ';', 'o', 'p', ',', '.', '/'}, 'z': {'a', 's', 'x'}, 'x': {'z', 'c', 's', 'd'}, 'c': {'x', 'v', 'd', 'f'},
	'v': {'c', 'b', 'f', 'g'}, 'b': {'v', 'n', 'g', 'h'}, 'n': {'b', 'm', 'h', 'j'}, 'm': {'n', ',', 'j', 'k'},
	' ': {' ', ' ', 'c', 'v', 'b', 'n', 'm'},
}
