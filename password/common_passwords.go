package password

// commonPasswords is a small denylist of the most frequently breached
// passwords, lowercased. The list catches only the worst offenders; the
// length and character-class rules do the rest.
var commonPasswords = map[string]struct{}{
	"password":       {},
	"password1":      {},
	"password123":    {},
	"passw0rd":       {},
	"p@ssw0rd":       {},
	"123456":         {},
	"1234567":        {},
	"12345678":       {},
	"123456789":      {},
	"1234567890":     {},
	"qwerty":         {},
	"qwerty123":      {},
	"qwertyuiop":     {},
	"abc123":         {},
	"iloveyou":       {},
	"admin":          {},
	"admin123":       {},
	"administrator":  {},
	"welcome":        {},
	"welcome1":       {},
	"letmein":        {},
	"monkey":         {},
	"dragon":         {},
	"sunshine":       {},
	"princess":       {},
	"football":       {},
	"baseball":       {},
	"superman":       {},
	"batman":         {},
	"trustno1":       {},
	"master":         {},
	"shadow":         {},
	"michael":        {},
	"jennifer":       {},
	"charlie":        {},
	"donald":         {},
	"freedom":        {},
	"whatever":       {},
	"starwars":       {},
	"computer":       {},
	"internet":       {},
	"secret":         {},
	"login":          {},
	"access":         {},
	"hello123":       {},
	"zaq12wsx":       {},
	"1q2w3e4r":       {},
	"qazwsx":         {},
	"password!":      {},
	"changeme":       {},
	"default":        {},
	"summer2024":     {},
	"winter2024":     {},
	"temp1234":       {},
	"letmein123":     {},
	"root":           {},
	"toor":           {},
	"guest":          {},
	"test":           {},
	"test123":        {},
	"testing123":     {},
	"passwort":       {},
	"motdepasse":     {},
	"contrasena":     {},
	"111111":         {},
	"000000":         {},
	"654321":         {},
	"696969":         {},
	"asdfgh":         {},
	"asdfghjkl":      {},
	"zxcvbnm":        {},
	"pokemon":        {},
	"minecraft":      {},
	"fortnite":       {},
	"samsung":        {},
	"apple123":       {},
	"google123":      {},
	"facebook":       {},
	"myspace1":       {},
	"linkedin":       {},
	"snoopy":         {},
	"mustang":        {},
	"harley":         {},
	"ranger":         {},
	"buster":         {},
	"soccer":         {},
	"hockey":         {},
	"killer":         {},
	"george":         {},
	"andrew":         {},
	"thomas":         {},
	"jessica":        {},
	"pepper":         {},
	"daniel":         {},
	"nicole":         {},
	"bailey":         {},
	"hunter":         {},
	"maggie":         {},
	"ginger":         {},
	"summer":         {},
	"ashley":         {},
	"matrix":         {},
	"secure123":      {},
	"s3cur3":         {},
	"pa55word":       {},
	"passphrase":     {},
	"correcthorse":   {},
	"opensesame":     {},
	"bienvenue":      {},
	"privet123":      {},
	"password2024":   {},
	"password2025":   {},
	"spring2025":     {},
	"autumn2025":     {},
	"newyork1":       {},
	"london123":      {},
	"mexico1":        {},
	"liverpool":      {},
	"arsenal":        {},
	"chelsea":        {},
	"barcelona":      {},
	"realmadrid":     {},
	"juventus":       {},
	"ferrari":        {},
	"porsche":        {},
	"mercedes":       {},
	"corvette":       {},
	"aa123456":       {},
	"a1b2c3d4":       {},
	"1qaz2wsx":       {},
	"q1w2e3r4":       {},
	"abcd1234":       {},
	"1234qwer":       {},
	"qwer1234":       {},
	"asdf1234":       {},
	"zxcv1234":       {},
	"pass1234":       {},
	"user1234":       {},
	"demo1234":       {},
	"temp123":        {},
	"spiderman":      {},
	"ironman1":       {},
	"avengers":       {},
	"deadpool":       {},
	"naruto123":      {},
	"onepiece":       {},
	"mypassword":     {},
	"mypassword1":    {},
	"newpassword":    {},
	"oldpassword":    {},
	"strongpassword": {},
}
