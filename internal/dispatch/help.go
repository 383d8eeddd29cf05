// ABOUTME: Static command reference printed by the help verb.
// ABOUTME: Kept in one place so it tracks the parser's grammar.

package dispatch

var helpLines = []string{
	"Commands:",
	"  say <msg>               All bots say message",
	"  say <id> <msg>          One bot says message",
	"  exit <id>|all           Disconnect bot(s)",
	"  list                    Show connected bots",
	"  jump <id>               Make bot jump",
	"  follow <id> <player>    Bot follows player",
	"  stop <id>               Stop bot path",
	"  tp <id> <x> <y> <z>     Bot runs /tp",
	"  pos <id>                Print position",
	"  dig <id>                Bot digs block it looks at",
	"  place <id>              Place block from hand",
	"  equip <id> <item>       Equip item in hand",
	"  inv <id>                List inventory",
	"  look <id> <yaw> <pitch> Look direction",
	"  craft <id> <item> [n]   Craft item",
	"  use <id>                Right-click/use item",
	"  attack <id>             Attack entity",
}
